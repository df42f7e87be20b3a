package elfimg

import "debug/elf"

const dyn64Size = 16

// DynTagAppend implements spec.md §4.B's dyn_tag_append: it locates the
// .dynamic section, scans forward for the first DT_NULL entry whose
// successor is still inside the section, and overwrites it with (tag,
// value), writing DT_NULL immediately after. Requires the object to have
// been linked with spare dynamic tags (--spare-dynamic-tags).
func DynTagAppend(v *View, tag int64, value uint64) error {
	shIdx, sh, ok := v.FindSection(elf.SHT_DYNAMIC, -1)
	if !ok {
		return ErrNoDynamicSection
	}
	_ = shIdx

	n := int(sh.Size) / dyn64Size
	for i := 0; i+1 < n; i++ {
		off := int64(sh.Off) + int64(i)*dyn64Size
		var d elf.Dyn64
		if err := v.readStruct(off, &d); err != nil {
			return err
		}
		if d.Tag != int64(elf.DT_NULL) {
			continue
		}
		// Found a spare: d is DT_NULL and d+1 is still in range.
		newEntry := elf.Dyn64{Tag: tag, Val: value}
		if err := v.writeStruct(off, &newEntry); err != nil {
			return err
		}
		nullEntry := elf.Dyn64{Tag: int64(elf.DT_NULL)}
		return v.writeStruct(off+dyn64Size, &nullEntry)
	}
	return ErrNoSpareDynamicTag
}
