package storage

import (
	"encoding/json"
	"fmt"

	"github.com/keshon/datastore"
)

const usersKey = "users"

// Storage persists per-user records (linked accounts) in a JSON kv store.
type Storage struct {
	ds *datastore.DataStore
}

// UserRecord is everything we keep for a linked Discord user.
type UserRecord struct {
	SpotifyToken json.RawMessage `json:"spotify_token,omitempty"`
	Username     string          `json:"username,omitempty"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// users loads the full user map, creating it on first use.
func (s *Storage) users() (map[string]UserRecord, error) {
	data, exists := s.ds.Get(usersKey)
	if !exists {
		return map[string]UserRecord{}, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal stored records: %w", err)
	}

	var records map[string]UserRecord
	if err := json.Unmarshal(jsonData, &records); err != nil {
		return nil, fmt.Errorf("unmarshal user records: %w", err)
	}
	if records == nil {
		records = map[string]UserRecord{}
	}
	return records, nil
}

// LoadAll returns every stored user record keyed by Discord user ID.
// Used at startup to rebuild the credential cache.
func (s *Storage) LoadAll() (map[string]UserRecord, error) {
	return s.users()
}

// UpsertSpotifyToken merges a serialized Spotify token into the user's record.
func (s *Storage) UpsertSpotifyToken(userID string, token json.RawMessage) error {
	records, err := s.users()
	if err != nil {
		return err
	}
	record := records[userID]
	record.SpotifyToken = token
	records[userID] = record
	s.ds.Add(usersKey, records)
	return nil
}

// UpsertUsername merges the display name into the user's record.
func (s *Storage) UpsertUsername(userID, username string) error {
	records, err := s.users()
	if err != nil {
		return err
	}
	record := records[userID]
	record.Username = username
	records[userID] = record
	s.ds.Add(usersKey, records)
	return nil
}

// DeleteSpotifyToken removes the linked credential, keeping the rest of the
// record. Called when the remote service reports the token expired.
func (s *Storage) DeleteSpotifyToken(userID string) error {
	records, err := s.users()
	if err != nil {
		return err
	}
	record, exists := records[userID]
	if !exists {
		return nil
	}
	record.SpotifyToken = nil
	records[userID] = record
	s.ds.Add(usersKey, records)
	return nil
}

// SpotifyToken returns the stored credential for a user, or false.
func (s *Storage) SpotifyToken(userID string) (json.RawMessage, bool, error) {
	records, err := s.users()
	if err != nil {
		return nil, false, err
	}
	record, exists := records[userID]
	if !exists || len(record.SpotifyToken) == 0 {
		return nil, false, nil
	}
	return record.SpotifyToken, true, nil
}
