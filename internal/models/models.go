package models

// All returns every model migrated by kasal, in dependency
// order.
func All() []any {
	return []any{
		&Agent{},
		&Task{},
		&Tool{},
		&Crew{},
		&Flow{},
		&Execution{},
		&TaskStatus{},
		&ExecutionTrace{},
		&ErrorTrace{},
		&MemoryBackend{},
		&MCPServer{},
		&Schedule{},
	}
}
