package context

type Key string

const (
	Caller Key = "caller"
	Params Key = "params"
)
