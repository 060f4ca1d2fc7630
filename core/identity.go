package core

import "fmt"

// Identity is the author recorded on every write batch.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (identity Identity) String() string {
	return fmt.Sprintf("%s <%s>", identity.Name, identity.Email)
}

// Database describes one named database known to the gateway.
type Database struct {
	Name   string `json:"name" msgpack:"name"`
	Size   int64  `json:"size" msgpack:"size"`     // capacity in bytes
	Used   int64  `json:"used" msgpack:"used"`     // bytes held by stored records
	NextID int64  `json:"nextId" msgpack:"nextId"` // next record id to hand out
}
