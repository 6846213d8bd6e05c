package storage

import "sort"

// Overlay buffers writes on top of a parent Database. Reads see buffered
// writes first. Nothing reaches the parent until Commit; dropping the overlay
// discards every pending mutation.
//
// Overlay is not safe for concurrent use.
type Overlay struct {
	parent  Database
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay wraps parent in a fresh write buffer.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{
		parent:  parent,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	k := string(key)
	delete(o.deleted, k)
	buf := make([]byte, len(value))
	copy(buf, value)
	o.pending[k] = buf
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := o.deleted[k]; ok {
		return nil, ErrNotFound
	}
	if value, ok := o.pending[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.pending, k)
	o.deleted[k] = struct{}{}
	return nil
}

// Close is a no-op; the parent owns the underlying resources.
func (o *Overlay) Close() {}

// Dirty reports the number of buffered mutations.
func (o *Overlay) Dirty() int {
	return len(o.pending) + len(o.deleted)
}

// Ops returns the buffered mutations sorted by key.
func (o *Overlay) Ops() []Op {
	ops := make([]Op, 0, o.Dirty())
	for k, v := range o.pending {
		ops = append(ops, Op{Key: []byte(k), Value: v})
	}
	for k := range o.deleted {
		ops = append(ops, Op{Key: []byte(k)})
	}
	sort.Slice(ops, func(i, j int) bool { return string(ops[i].Key) < string(ops[j].Key) })
	return ops
}

// Commit flushes the buffer into the parent, in one batch when the parent
// supports it. The overlay is empty afterwards.
func (o *Overlay) Commit() error {
	ops := o.Ops()
	if len(ops) == 0 {
		return nil
	}
	if batcher, ok := o.parent.(Batcher); ok {
		if err := batcher.WriteBatch(ops); err != nil {
			return err
		}
	} else {
		for _, op := range ops {
			var err error
			if op.Value == nil {
				err = o.parent.Delete(op.Key)
			} else {
				err = o.parent.Put(op.Key, op.Value)
			}
			if err != nil {
				return err
			}
		}
	}
	o.pending = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
	return nil
}

// WriteBatch lets a child overlay commit into this one.
func (o *Overlay) WriteBatch(ops []Op) error {
	for _, op := range ops {
		if op.Value == nil {
			_ = o.Delete(op.Key)
			continue
		}
		_ = o.Put(op.Key, op.Value)
	}
	return nil
}
