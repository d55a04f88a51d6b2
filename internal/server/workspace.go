package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/twpayne/go-terrain/render"
)

var (
	errDatasetNotFound = errors.New("dataset not found")
	errWorkspaceFull   = errors.New("workspace full")
)

// A workspace holds the layers created through the API by handle. All layer
// operations are serialized by a single mutex.
type workspace struct {
	mutex  sync.Mutex
	layers map[uuid.UUID]*render.Layer
	max    int
}

func newWorkspace(maxLayers int) *workspace {
	return &workspace{
		layers: make(map[uuid.UUID]*render.Layer),
		max:    maxLayers,
	}
}

func (w *workspace) add(layer *render.Layer) (uuid.UUID, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if len(w.layers) >= w.max {
		return uuid.Nil, errWorkspaceFull
	}
	id := uuid.New()
	w.layers[id] = layer
	return id, nil
}

func (w *workspace) remove(id uuid.UUID) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, ok := w.layers[id]; !ok {
		return errDatasetNotFound
	}
	delete(w.layers, id)
	return nil
}

// with calls f with the layer with the given id while holding the
// workspace's lock.
func (w *workspace) with(id uuid.UUID, f func(*render.Layer) error) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	layer, ok := w.layers[id]
	if !ok {
		return errDatasetNotFound
	}
	return f(layer)
}

// with2 is like with but for two layers, which may be the same.
func (w *workspace) with2(id1, id2 uuid.UUID, f func(*render.Layer, *render.Layer) error) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	layer1, ok := w.layers[id1]
	if !ok {
		return errDatasetNotFound
	}
	layer2, ok := w.layers[id2]
	if !ok {
		return errDatasetNotFound
	}
	return f(layer1, layer2)
}

func (w *workspace) len() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.layers)
}
