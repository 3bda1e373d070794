package rag

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	memorySessions = 512
	memoryTTL      = 2 * time.Hour

	// turns kept per session; older ones fall off the front
	memoryTurns = 6
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Query  string
	Answer string
}

// Memory holds recent conversation turns per session so follow-up questions
// can be answered in context. Bounded by session count and TTL; an evicted
// session simply starts fresh.
type Memory struct {
	cache *expirable.LRU[string, []Turn]
}

func NewMemory() *Memory {
	return &Memory{
		cache: expirable.NewLRU[string, []Turn](memorySessions, nil, memoryTTL),
	}
}

func (m *Memory) Turns(sessionID string) []Turn {
	turns, _ := m.cache.Get(sessionID)
	return turns
}

func (m *Memory) Append(sessionID string, t Turn) {
	turns, _ := m.cache.Get(sessionID)
	turns = append(turns, t)
	if len(turns) > memoryTurns {
		turns = turns[len(turns)-memoryTurns:]
	}
	m.cache.Add(sessionID, turns)
}
