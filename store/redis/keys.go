package redis

// Key layout, with prefix "lakequeue:" by default:
//
//	lakequeue:{partition}:e:{key}  hash   value, token
//	lakequeue:{partition}:idx      zset   row keys of the partition

const defaultKeyPrefix = "lakequeue:"

func (s *Store) entityKey(partition, key string) string {
	return s.prefix + "{" + partition + "}:e:" + key
}

func (s *Store) indexKey(partition string) string {
	return s.prefix + "{" + partition + "}:idx"
}
