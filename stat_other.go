//go:build !linux

package ignition

func fillSysStat(*FileStat, any) {}
