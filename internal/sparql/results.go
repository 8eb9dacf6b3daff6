package sparql

// Term is one bound value in the SPARQL 1.1 JSON results format.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Binding maps variable names to their values for one result row.
type Binding map[string]Term

// Value returns the lexical value of name, or "" when it is unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

type Head struct {
	Vars []string `json:"vars"`
}

type ResultSet struct {
	Bindings []Binding `json:"bindings"`
}

// Results is the decoded body of an application/sparql-results+json response.
type Results struct {
	Head    Head      `json:"head"`
	Results ResultSet `json:"results"`
}

func (r *Results) Rows() []Binding {
	if r == nil {
		return nil
	}
	return r.Results.Bindings
}

func (r *Results) Empty() bool {
	return len(r.Rows()) == 0
}

// Labels returns the distinct non-empty values bound to name, in response
// order.
func (r *Results) Labels(name string) []string {
	rows := r.Rows()
	seen := make(map[string]struct{}, len(rows))
	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		v, ok := row[name]
		if !ok || v.Value == "" {
			continue
		}
		if _, dup := seen[v.Value]; dup {
			continue
		}
		seen[v.Value] = struct{}{}
		labels = append(labels, v.Value)
	}
	return labels
}
