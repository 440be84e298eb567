package checkpointer

import "github.com/google/uuid"

func newCheckpointID() string {
	return uuid.NewString()
}
