package audio

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/recallio/scribe/internal/chunkstore"
)

// mockPayloads is an in-memory PayloadStore. unreadable seqs are listed but
// fail on Read, mimicking a payload lost underneath its meta record.
type mockPayloads struct {
	payloads   map[int][]byte
	unreadable map[int]bool
}

func newMockPayloads() *mockPayloads {
	return &mockPayloads{
		payloads:   make(map[int][]byte),
		unreadable: make(map[int]bool),
	}
}

func (m *mockPayloads) List(_ string) ([]chunkstore.Entry, error) {
	seqs := make([]int, 0, len(m.payloads))
	for s := range m.payloads {
		seqs = append(seqs, s)
	}
	// Ordered by seq, as the real store guarantees.
	for i := 0; i < len(seqs); i++ {
		for j := i + 1; j < len(seqs); j++ {
			if seqs[j] < seqs[i] {
				seqs[i], seqs[j] = seqs[j], seqs[i]
			}
		}
	}
	entries := make([]chunkstore.Entry, len(seqs))
	for i, s := range seqs {
		entries[i] = chunkstore.Entry{Seq: s, Ref: fmt.Sprintf("chunk/test/%d", s), Size: int64(len(m.payloads[s]))}
	}
	return entries, nil
}

func (m *mockPayloads) Read(_ string, seq int) ([]byte, error) {
	if m.unreadable[seq] {
		return nil, chunkstore.ErrChunkNotFound
	}
	data, ok := m.payloads[seq]
	if !ok {
		return nil, chunkstore.ErrChunkNotFound
	}
	return data, nil
}

func TestAssemble_Complete(t *testing.T) {
	m := newMockPayloads()
	m.payloads[0] = []byte("aaa")
	m.payloads[1] = []byte("bb")
	m.payloads[2] = []byte("cccc")

	data, info, err := Assemble(m, "sess-1")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if string(data) != "aaabbcccc" {
		t.Errorf("unexpected concatenation: %q", data)
	}
	if info.Total != 3 || info.Available != 3 {
		t.Errorf("unexpected info: %+v", info)
	}
	if len(info.Skipped) != 0 {
		t.Errorf("expected no skipped chunks, got %v", info.Skipped)
	}
}

func TestAssemble_PartialWithGap(t *testing.T) {
	m := newMockPayloads()
	m.payloads[0] = []byte("head")
	m.payloads[2] = []byte("tail")

	data, info, err := Assemble(m, "sess-1")
	if err != nil {
		t.Fatalf("partial reconstruction must not fail: %v", err)
	}
	if string(data) != "headtail" {
		t.Errorf("unexpected concatenation: %q", data)
	}
	if info.Total != 3 || info.Available != 2 {
		t.Errorf("unexpected info: %+v", info)
	}
	if !reflect.DeepEqual(info.Skipped, []int{1}) {
		t.Errorf("expected skipped=[1], got %v", info.Skipped)
	}
}

func TestAssemble_UnreadableChunkSkipped(t *testing.T) {
	m := newMockPayloads()
	m.payloads[0] = []byte("one")
	m.payloads[1] = []byte("lost")
	m.payloads[2] = []byte("three")
	m.unreadable[1] = true

	data, info, err := Assemble(m, "sess-1")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if string(data) != "onethree" {
		t.Errorf("unexpected concatenation: %q", data)
	}
	if !reflect.DeepEqual(info.Skipped, []int{1}) {
		t.Errorf("expected skipped=[1], got %v", info.Skipped)
	}
	if info.Available != 2 {
		t.Errorf("expected 2 available, got %d", info.Available)
	}
}

func TestAssemble_NoChunks(t *testing.T) {
	m := newMockPayloads()

	_, _, err := Assemble(m, "sess-1")
	if !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}
}

func TestAssemble_AllUnreadable(t *testing.T) {
	m := newMockPayloads()
	m.payloads[0] = []byte("x")
	m.unreadable[0] = true

	_, _, err := Assemble(m, "sess-1")
	if !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks when every chunk is unreadable, got %v", err)
	}
}

func TestAssemble_LengthIndependentOfUploadOrder(t *testing.T) {
	payloads := map[int][]byte{}
	total := 0
	for seq := 0; seq < 10; seq++ {
		p := []byte(fmt.Sprintf("chunk-%d-payload", seq))
		payloads[seq] = p
		total += len(p)
	}

	// Any permutation of delivery yields the same output length and bytes.
	rng := rand.New(rand.NewSource(42))
	var first []byte
	for trial := 0; trial < 5; trial++ {
		m := newMockPayloads()
		order := rng.Perm(10)
		for _, seq := range order {
			m.payloads[seq] = payloads[seq]
		}

		data, info, err := Assemble(m, "sess-1")
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if len(data) != total {
			t.Errorf("trial %d: expected %d bytes, got %d", trial, total, len(data))
		}
		if info.Available != 10 {
			t.Errorf("trial %d: expected 10 available, got %d", trial, info.Available)
		}
		if first == nil {
			first = data
		} else if string(first) != string(data) {
			t.Errorf("trial %d: output depends on delivery order", trial)
		}
	}
}
