package local

// SetRemove replaces the unlink function used by s.
func SetRemove(s *Storage, fn func(string) error) { s.remove = fn }
