package taskdoc

import "fmt"

// AddPolicy decides what Add does when a task with the same uuid is already present.
type AddPolicy int

const (
	// InsertAlways inserts at the head even when the uuid exists, leaving a duplicate until a later
	// update or delete by uuid reaches it.
	InsertAlways AddPolicy = iota
	// Upsert replaces the first task with the same uuid in place and only inserts at the head when none
	// exists.
	Upsert
)

func (p AddPolicy) String() string {
	switch p {
	case InsertAlways:
		return "insert-always"
	case Upsert:
		return "upsert"
	default:
		return fmt.Sprintf("AddPolicy(%d)", int(p))
	}
}

// ParseAddPolicy reads the names returned by AddPolicy.String.
func ParseAddPolicy(s string) (AddPolicy, error) {
	switch s {
	case "insert-always", "":
		return InsertAlways, nil
	case "upsert":
		return Upsert, nil
	default:
		return InsertAlways, fmt.Errorf("unknown add policy %q", s)
	}
}

type options struct {
	addPolicy AddPolicy
	actorID   string
}

// Option configures a Document.
type Option func(*options)

// WithAddPolicy sets the duplicate-uuid policy of Add. The default is InsertAlways.
func WithAddPolicy(p AddPolicy) Option {
	return func(o *options) {
		o.addPolicy = p
	}
}

// WithActorID sets the hex encoded actor id the document writes changes as. The default is a random id.
func WithActorID(id string) Option {
	return func(o *options) {
		o.actorID = id
	}
}
