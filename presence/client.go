package presence

import (
	richgo "github.com/hugolgst/rich-go/client"
)

// Client is the presence IPC connection this process drives. The real
// implementation talks to the local Discord socket; tests substitute a
// fake.
type Client interface {
	Connect() error
	SetActivity(details, state string) error
	Close() error
}

type richClient struct {
	appID string
}

// NewRichClient returns a Client backed by Discord Rich Presence IPC.
func NewRichClient(appID string) Client {
	return &richClient{appID: appID}
}

func (c *richClient) Connect() error {
	return richgo.Login(c.appID)
}

func (c *richClient) SetActivity(details, state string) error {
	return richgo.SetActivity(richgo.Activity{
		Details: details,
		State:   state,
	})
}

func (c *richClient) Close() error {
	richgo.Logout()
	return nil
}
