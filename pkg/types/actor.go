package types

// ActorType identifies who performed a lifecycle action
type ActorType string

const (
	ActorDoctor ActorType = "doctor"
	ActorNurse  ActorType = "nurse"
	ActorSystem ActorType = "system"
)

// Actor is the identity/audit context supplied with every engine operation
type Actor struct {
	ID   int64     `json:"id"`
	Type ActorType `json:"type"`
	Name string    `json:"name"`
}
