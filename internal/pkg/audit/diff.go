package audit

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff 两个状态规范化文本之间的补丁文本，状态相同时为空
func Diff(prev, next any) string {
	return DiffCanonical(Canonicalize(prev), Canonicalize(next))
}

// DiffCanonical 对已规范化的文本求补丁
func DiffCanonical(prev, next string) string {
	if prev == next {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev, next, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(prev, diffs))
}

// ApplyDiff 把补丁应用到旧状态上，用于重放校验
func ApplyDiff(prev, patch string) (string, bool) {
	if patch == "" {
		return prev, true
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return prev, false
	}
	out, applied := dmp.PatchApply(patches, prev)
	for _, ok := range applied {
		if !ok {
			return out, false
		}
	}
	return out, true
}
