package homekit

// Service is a named bundle of characteristics for one capability.
type Service struct {
	Kind            ServiceKind
	Name            string
	Subtype         SubtypeKey
	Characteristics []*Characteristic
}

// NewService builds a service with one characteristic per kind, in order.
// A Name characteristic is seeded with name when present.
func NewService(kind ServiceKind, name string, subtype SubtypeKey, chars ...CharKind) *Service {
	s := &Service{Kind: kind, Name: name, Subtype: subtype}
	for _, ck := range chars {
		c := NewCharacteristic(ck)
		c.service = s
		if ck == CharName {
			c.value = name
		}
		s.Characteristics = append(s.Characteristics, c)
	}
	return s
}

// Get returns the characteristic of the given kind, or nil.
func (s *Service) Get(kind CharKind) *Characteristic {
	for _, c := range s.Characteristics {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// AddListener registers fn on every characteristic of the service.
func (s *Service) AddListener(fn Listener) {
	for _, c := range s.Characteristics {
		c.AddListener(fn)
	}
}
