package store

import (
	"encoding/binary"
	"encoding/json"

	bolt "go.etcd.io/bbolt"
)

const bucketCells = "cells"

func init() {
	initDB["initialize cell history table"] = func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCells))
		return err
	}
}

// Cell is an executed cell.
type Cell struct {
	// Sequence number in the store. Assigned by AddCell.
	Seq int `json:"-"`
	// Jupyter session the cell was executed in.
	Session string `json:"session"`
	// Execution count of the cell within its session.
	Line  int    `json:"line"`
	Input string `json:"input"`
}

// AddCell adds a cell to the history and returns its sequence number.
func (s *Store) AddCell(cell Cell) (int, error) {
	value, err := json.Marshal(cell)
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCells))
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), value)
	})
	return int(seq), err
}

// IterateCells calls f with every cell whose sequence number is in [from,
// upto), in order. Iteration stops when f returns false.
func (s *Store) IterateCells(from, upto int, f func(Cell) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCells)).Cursor()
		for k, v := c.Seek(marshalSeq(uint64(from))); k != nil && unmarshalSeq(k) < uint64(upto); k, v = c.Next() {
			cell, err := unmarshalCell(k, v)
			if err != nil {
				return err
			}
			if !f(cell) {
				break
			}
		}
		return nil
	})
}

// Tail returns the last n cells, oldest first.
func (s *Store) Tail(n int) ([]Cell, error) {
	var cells []Cell
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketCells)).Cursor()
		for k, v := c.Last(); k != nil && len(cells) < n; k, v = c.Prev() {
			cell, err := unmarshalCell(k, v)
			if err != nil {
				return err
			}
			cells = append(cells, cell)
		}
		return nil
	})
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells, err
}

// SessionCells returns the cells of a session whose line numbers are in
// [start, stop). A stop of 0 means no upper bound.
func (s *Store) SessionCells(session string, start, stop int) ([]Cell, error) {
	var cells []Cell
	err := s.IterateCells(0, int(^uint(0)>>1), func(cell Cell) bool {
		if cell.Session == session && cell.Line >= start && (stop == 0 || cell.Line < stop) {
			cells = append(cells, cell)
		}
		return true
	})
	return cells, err
}

func unmarshalCell(k, v []byte) (Cell, error) {
	var cell Cell
	if err := json.Unmarshal(v, &cell); err != nil {
		return Cell{}, err
	}
	cell.Seq = int(unmarshalSeq(k))
	return cell, nil
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
