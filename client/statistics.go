package client

import "pkgoracle/message"

// Statistics is a read-only, named view over one GETSTATS reply. Each call
// to Client.GetStatistics constructs a new value from the fields actually
// returned, so clients keep working when the service adds, removes, or
// reorders fields.
type Statistics struct {
	names  []string
	values map[string]message.Value
}

func newStatistics(fields message.Fields) *Statistics {
	s := &Statistics{
		names:  make([]string, 0, len(fields)),
		values: make(map[string]message.Value, len(fields)),
	}
	for _, f := range fields {
		s.names = append(s.names, f.Name)
		s.values[f.Name] = f.Value
	}
	return s
}

// FieldNames returns the field names in the order the service reported them.
func (s *Statistics) FieldNames() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Get returns the value of the named field, or false if the service did not
// report it.
func (s *Statistics) Get(name string) (message.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Int returns the named field as an integer, or 0 if it is absent or not an
// integer field.
func (s *Statistics) Int(name string) int64 {
	if v, ok := s.values[name]; ok {
		if n, ok := v.(message.Int); ok {
			return int64(n)
		}
	}
	return 0
}

// Len returns the number of fields reported.
func (s *Statistics) Len() int {
	return len(s.names)
}
