package bridge

// Arrival is a credential reaching the gateway from the browser. The two
// variants correspond to the two places an OAuth redirect can put it.
type Arrival interface {
	Flow() FlowID
	kind() string
}

// CodeArrival is an authorization code seen in the callback query string.
// It must be exchanged server-side before it becomes a credential.
type CodeArrival struct {
	FlowID FlowID
	Code   string
}

func (a CodeArrival) Flow() FlowID { return a.FlowID }
func (CodeArrival) kind() string   { return "code" }

// FragmentArrival is a bearer token the callback page read from the URL
// fragment and posted back to the ingest endpoint.
type FragmentArrival struct {
	FlowID FlowID
	Token  string
}

func (a FragmentArrival) Flow() FlowID { return a.FlowID }
func (FragmentArrival) kind() string   { return "fragment" }
