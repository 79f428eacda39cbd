package git

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
)

// go-git's default file transport shells out to git-upload-pack and git-receive-pack.
// Serving file:// and plain-path remotes in process keeps the daemon free of a git
// binary. Remotes reached this way must be bare repositories.
func init() {
	client.InstallProtocol("file", newLocalTransport(server.DefaultLoader))
}

// localTransport wraps go-git's embedded server. Its upload-pack fails on "have"
// commits it does not store, which a replica with unpushed commits always sends, so
// those are dropped before the request reaches it.
type localTransport struct {
	loader server.Loader
}

func newLocalTransport(loader server.Loader) transport.Transport {
	return &localTransport{loader: loader}
}

func (t *localTransport) NewUploadPackSession(ep *transport.Endpoint, auth transport.AuthMethod) (transport.UploadPackSession, error) {
	sto, err := t.loader.Load(ep)
	if err != nil {
		return nil, err
	}
	sess, err := server.NewServer(storerLoader{sto}).NewUploadPackSession(ep, auth)
	if err != nil {
		return nil, err
	}
	return &knownHavesSession{UploadPackSession: sess, storer: sto}, nil
}

func (t *localTransport) NewReceivePackSession(ep *transport.Endpoint, auth transport.AuthMethod) (transport.ReceivePackSession, error) {
	return server.NewServer(t.loader).NewReceivePackSession(ep, auth)
}

// storerLoader hands out an already loaded storer.
type storerLoader struct {
	sto storer.Storer
}

func (l storerLoader) Load(*transport.Endpoint) (storer.Storer, error) {
	return l.sto, nil
}

type knownHavesSession struct {
	transport.UploadPackSession
	storer storer.Storer
}

func (s *knownHavesSession) UploadPack(ctx context.Context, req *packp.UploadPackRequest) (*packp.UploadPackResponse, error) {
	req.Haves = knownHashes(s.storer, req.Haves)
	return s.UploadPackSession.UploadPack(ctx, req)
}

func knownHashes(sto storer.EncodedObjectStorer, hashes []plumbing.Hash) []plumbing.Hash {
	known := make([]plumbing.Hash, 0, len(hashes))
	for _, h := range hashes {
		if sto.HasEncodedObject(h) == nil {
			known = append(known, h)
		}
	}
	return known
}
