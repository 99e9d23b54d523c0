package journal

import "context"

// ForceSchemaVersion rewrites the stored schema version.
func (s *Store) ForceSchemaVersion(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE schema_version SET version = ?", version)
	return err
}

// PragmaPerConn holds n pool connections open together and reads pragma on
// each of them.
func (s *Store) PragmaPerConn(ctx context.Context, pragma string, n int) ([]string, error) {
	values := make([]string, 0, n)
	for range n {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		var value string
		if err := conn.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
