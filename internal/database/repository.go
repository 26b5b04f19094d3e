package database

// HuddleRepository is the storage collaborator consumed by the signaling
// core and the HTTP shell. Channel ids are opaque strings owned by the main
// application; this repository only persists what the real-time layer needs.
type HuddleRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(channelId string, before, limit int) ([]Message, error)
}
