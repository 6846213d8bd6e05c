package state

import "genomarket/core/types"

// HashList loads the list of hashes stored under key.
func (m *Manager) HashList(key []byte) ([]types.Hash, error) {
	var list []types.Hash
	ok, err := m.KVGet(key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.Hash{}, nil
	}
	return list, nil
}

// AppendHash appends id to the list stored under key. Duplicates are kept out.
func (m *Manager) AppendHash(key []byte, id types.Hash) error {
	list, err := m.HashList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == id {
			return nil
		}
	}
	list = append(list, id)
	return m.KVPut(key, list)
}

// RemoveHash drops id from the list stored under key. The key is deleted once
// the list is empty.
func (m *Manager) RemoveHash(key []byte, id types.Hash) (bool, error) {
	list, err := m.HashList(key)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, existing := range list {
		if existing == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		return true, m.KVDelete(key)
	}
	return true, m.KVPut(key, list)
}
