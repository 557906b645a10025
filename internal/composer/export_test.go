package composer

// InflightFetches возвращает число незавершённых общих запросов группы.
func InflightFetches(g *FetchGroup) int {
	return g.inflight()
}
