package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Provider. It backs the reconciler tests and is
// handy for dry runs; it is not reachable through New.
type Memory struct {
	// Error injection for failure-path tests. When set, the matching
	// operation fails with the given error.
	ListErr     error
	UploadErr   error
	DownloadErr error

	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func (p *Memory) Name() string { return "memory" }

func (p *Memory) List(ctx context.Context) ([]RemoteObject, error) {
	if p.ListErr != nil {
		return nil, &RemoteError{Provider: "memory", Op: "list", Err: p.ListErr}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	objects := make([]RemoteObject, 0, len(p.objects))
	for key, obj := range p.objects {
		objects = append(objects, RemoteObject{
			Key:        key,
			ContentTag: p.LocalTag(obj.data),
			Modified:   obj.modified,
		})
	}
	return objects, nil
}

func (p *Memory) Upload(ctx context.Context, relPath string, data []byte) error {
	if p.UploadErr != nil {
		return &RemoteError{Provider: "memory", Op: "upload " + relPath, Err: p.UploadErr}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[relPath] = memoryObject{data: append([]byte(nil), data...), modified: time.Now()}
	return nil
}

func (p *Memory) Download(ctx context.Context, key string) ([]byte, error) {
	if p.DownloadErr != nil {
		return nil, &RemoteError{Provider: "memory", Op: "download " + key, Err: p.DownloadErr}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[key]
	if !ok {
		return nil, &RemoteError{Provider: "memory", Op: "download " + key, Err: fmt.Errorf("no such object")}
	}
	return append([]byte(nil), obj.data...), nil
}

func (p *Memory) LocalTag(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put seeds an object directly, bypassing Upload and its error injection.
func (p *Memory) Put(key string, data []byte, modified time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = memoryObject{data: append([]byte(nil), data...), modified: modified}
}

// Bytes returns the stored bytes for key, or nil when absent.
func (p *Memory) Bytes(key string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[key]
	if !ok {
		return nil
	}
	return append([]byte(nil), obj.data...)
}

// Len reports how many objects the store holds.
func (p *Memory) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}
