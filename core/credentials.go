package core

import "fmt"

// Identity is the commit author used for writes to the backing store.
type Identity struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s <%s>", i.Name, i.Email)
}

// Credentials identify a backing-store target: an opaque token plus the
// owner and repository coordinates.
type Credentials struct {
	Token string `json:"token" yaml:"token"`
	Owner string `json:"owner" yaml:"owner"`
	Repo  string `json:"repo" yaml:"repo"`
}

// Complete reports whether owner and repository are both set. The token may
// legitimately be empty for backends that do not need one.
func (c Credentials) Complete() bool {
	return c.Owner != "" && c.Repo != ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s/%s", c.Owner, c.Repo)
}
