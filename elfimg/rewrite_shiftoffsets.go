package elfimg

// ShiftFileOffsets implements spec.md §4.B's shift_file_offsets: adds
// delta to the ELF header's e_phoff and e_shoff (when non-zero) and to
// every section and program header's sh_offset/p_offset. It does not
// move any section payloads; the caller is responsible for that if
// delta changes where those payloads actually live.
func ShiftFileOffsets(v *View, delta int64) error {
	// The header tables are rewritten where they currently are, before
	// e_phoff/e_shoff are shifted: nothing is physically moved.
	for i := 0; i < v.NumSections(); i++ {
		sh, err := v.Section(i)
		if err != nil {
			return err
		}
		sh.Off = uint64(int64(sh.Off) + delta)
		if err := v.PutSection(i, sh); err != nil {
			return err
		}
	}

	for i := 0; i < int(v.Header.Phnum); i++ {
		ph, err := v.Prog(i)
		if err != nil {
			return err
		}
		ph.Off = uint64(int64(ph.Off) + delta)
		if err := v.PutProg(i, ph); err != nil {
			return err
		}
	}

	if v.Header.Phoff != 0 {
		v.Header.Phoff = uint64(int64(v.Header.Phoff) + delta)
	}
	if v.Header.Shoff != 0 {
		v.Header.Shoff = uint64(int64(v.Header.Shoff) + delta)
	}
	return v.writeStruct(0, &v.Header)
}
