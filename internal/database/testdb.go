package database

// NewInMemory opens a migrated in-memory SQLite database, for use by package
// tests across the engine. Each distinct name gets its own database; calls
// with the same name share it while a connection to it stays open. Without
// cache=shared, every connection in the pool would otherwise see a distinct
// anonymous in-memory database and migrations would appear to vanish.
func NewInMemory(name string) (*DB, error) {
	db, err := New(Config{
		Path:    "file:" + name + "?mode=memory&cache=shared",
		Profile: ProfileStandard,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
