package store

import "database/sql"

// GetConfig returns a ken_config value, or "" if unset.
func (s *Store) GetConfig(key string) (string, error) {
	return getConfig(s.db, key)
}

// SetConfig upserts a ken_config value, used by `ken config <key> <value>`.
func (s *Store) SetConfig(key, value string) error {
	return setConfig(s.db, key, value)
}

func getConfig(q querier, key string) (string, error) {
	row := q.QueryRow("SELECT value FROM ken_config WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func setConfig(q querier, key, value string) error {
	_, err := q.Exec("INSERT OR REPLACE INTO ken_config (key, value) VALUES (?, ?)", key, value)
	return err
}
