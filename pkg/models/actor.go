package models

// ActorKind distinguishes who performed an action.
type ActorKind string

const (
	ActorKindHuman  ActorKind = "human"
	ActorKindWorker ActorKind = "worker"
	ActorKindSystem ActorKind = "system"
)

// Actor is the tagged identity recorded on audit entries. System actors
// carry no ID.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// HumanActor returns an actor for a human user.
func HumanActor(id string) Actor {
	return Actor{Kind: ActorKindHuman, ID: id}
}

// WorkerActor returns an actor for an automated worker.
func WorkerActor(id string) Actor {
	return Actor{Kind: ActorKindWorker, ID: id}
}

// SystemActor returns the actor for mutations the core performs on its own,
// such as scheduler-driven runs.
func SystemActor() Actor {
	return Actor{Kind: ActorKindSystem}
}

func (a Actor) String() string {
	if a.Kind == ActorKindSystem || a.ID == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.ID
}
