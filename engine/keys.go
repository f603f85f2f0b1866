package engine

import (
	"fmt"

	"github.com/xraph/lakequeue/job"
)

// Record store layout.
//
//	partition "{qt:03}_{gid:020}"  keys "{gid:020}_{id:020}" (job records)
//	                                     "lock_{identifier}"   (dedup locks)
//	partition "{qt:03}"            keys "{qt:03}_{id:020}"    (reverse index)
//	partition "{qt:03}_jobid"      key  "{qt:03}_jobid"       (id counter)
//
// Zero padding keeps lexical order equal to numeric order, so a group's
// records form one contiguous key range. "lock_" sorts after every digit.

func jobPartition(qt job.QueueType, groupID int64) string {
	return fmt.Sprintf("%03d_%020d", qt, groupID)
}

func jobKey(groupID, id int64) string {
	return fmt.Sprintf("%020d_%020d", groupID, id)
}

func lockKey(identifier string) string {
	return "lock_" + identifier
}

func indexPartition(qt job.QueueType) string {
	return fmt.Sprintf("%03d", qt)
}

func indexKey(qt job.QueueType, id int64) string {
	return fmt.Sprintf("%03d_%020d", qt, id)
}

func counterKey(qt job.QueueType) string {
	return fmt.Sprintf("%03d_jobid", qt)
}

// groupRange returns the [from, to) key range of a group's job records.
// Every such key starts with "{gid:020}_", and '`' is the byte after '_',
// so the bound holds for math.MaxInt64 as well.
func groupRange(groupID int64) (string, string) {
	prefix := fmt.Sprintf("%020d", groupID)
	return prefix + "_", prefix + "`"
}
