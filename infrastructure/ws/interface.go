package ws

type IHub interface {
	Run()
	Stop()
	RegisterClient(client *UserClient)
	UnregisterClient(client *UserClient)
	SendToClient(clientId string, message []byte) bool
	Broadcast(message []byte) int
	GetClientCount() int
	SetOnClientUnregister(callback func(client *UserClient) error)
}
