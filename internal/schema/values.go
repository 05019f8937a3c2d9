package schema

// Values holds validated parameters keyed by field name. Absent optional
// fields without a default have no entry.
type Values map[string]any

// Has reports whether name has a value.
func (v Values) Has(name string) bool {
	x, ok := v[name]
	return ok && x != nil
}

// Raw returns the value stored under name.
func (v Values) Raw(name string) any {
	return v[name]
}

func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

func (v Values) Int(name string) int {
	i, _ := v[name].(int)
	return i
}

func (v Values) StringList(name string) []string {
	l, _ := v[name].([]string)
	return l
}

func (v Values) Map(name string) map[string]any {
	m, _ := v[name].(map[string]any)
	return m
}

func (v Values) StringMap(name string) map[string]string {
	m, _ := v[name].(map[string]string)
	return m
}

// FileMode returns a mode coerced by FileMode.
func (v Values) FileMode(name string) (uint32, bool) {
	m, ok := v[name].(uint32)
	return m, ok
}
