package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/xdg-go/scram"
)

var (
	// SHA256 backs SCRAM-SHA-256
	SHA256 scram.HashGeneratorFcn = func() hash.Hash { return sha256.New() }

	// SHA512 backs SCRAM-SHA-512
	SHA512 scram.HashGeneratorFcn = func() hash.Hash { return sha512.New() }
)

// scramClient adapts xdg-go/scram to sarama.SCRAMClient
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	hashFn scram.HashGeneratorFcn
}

func newSCRAMClient(fn scram.HashGeneratorFcn) *scramClient {
	return &scramClient{hashFn: fn}
}

func (x *scramClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.hashFn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}
