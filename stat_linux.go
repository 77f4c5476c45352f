package ignition

import (
	"syscall"
	"time"
)

func fillSysStat(st *FileStat, sys any) {
	raw, ok := sys.(*syscall.Stat_t)
	if !ok || raw == nil {
		return
	}
	st.AccessTime = time.Unix(raw.Atim.Unix())
	st.ChangeTime = time.Unix(raw.Ctim.Unix())
	st.Dev = uint64(raw.Dev) //nolint:unconvert // width differs across linux arches
	st.Ino = raw.Ino
	st.Nlink = uint64(raw.Nlink) //nolint:unconvert // width differs across linux arches
	st.UID = raw.Uid
	st.GID = raw.Gid
	st.Blocks = raw.Blocks
	st.BlkSize = int64(raw.Blksize) //nolint:unconvert // width differs across linux arches
}
