package lobby

import "fmt"

// Op is a filter comparison operator accepted by the query endpoint.
type Op string

const (
	OpEQ       Op = "EQ"
	OpNE       Op = "NE"
	OpLT       Op = "LT"
	OpLE       Op = "LE"
	OpGT       Op = "GT"
	OpGE       Op = "GE"
	OpContains Op = "CONTAINS"
)

var validOps = map[Op]bool{
	OpEQ: true, OpNE: true, OpLT: true, OpLE: true,
	OpGT: true, OpGE: true, OpContains: true,
}

// Filter is one predicate of a list query. The service requires numeric and
// boolean values to be encoded as strings.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

// NewFilter builds a Filter, rejecting operators the service does not accept.
func NewFilter(field string, op Op, value string) (Filter, error) {
	if !validOps[op] {
		return Filter{}, fmt.Errorf("invalid filter op %q", op)
	}
	return Filter{Field: field, Op: op, Value: value}, nil
}

// Order is one sort directive of a list query.
type Order struct {
	Field string `json:"field"`
	Asc   bool   `json:"asc"`
}

type queryRequest struct {
	Filter            []Filter `json:"filter"`
	Order             []Order  `json:"order"`
	Count             int      `json:"count"`
	ContinuationToken string   `json:"continuationToken"`
}

// Only public, joinable lobbies are ever listed. This is a policy of the tool,
// not something callers get to configure.
func publicJoinableFilter() []Filter {
	slots, _ := NewFilter("AvailableSlots", OpGT, "0")
	password, _ := NewFilter("HasPassword", OpEQ, "false")
	return []Filter{slots, password}
}

func createdDescOrder() []Order {
	return []Order{{Field: "Created", Asc: false}}
}
