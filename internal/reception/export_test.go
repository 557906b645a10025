package reception

// PendingRegistries возвращает число заказов с незавершённым реестром продвижений.
func PendingRegistries(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registries)
}
