package vm

// SystemControl holds the SCTLR_ELx controls of a regime that sit outside the
// walk parameters.
type SystemControl struct {
	M bool
	C bool
	I bool
}

// S1TTWParams are the decoded register fields that control a stage 1 walk.
// For regimes with two VA ranges they describe the range of the address being
// translated.
type S1TTWParams struct {
	TGx  TGx
	TxSZ int
	TTB  uint64
	ASID uint16
	PS   uint64

	IRGN uint64
	ORGN uint64
	SH   uint64
	MAIR uint64

	EPD    bool
	HA     bool
	HD     bool
	TBI    bool
	TBID   bool
	NFD    bool
	E0PD   bool
	MTX    bool
	HPD    bool
	EE     bool
	WXN    bool
	NTLSMD bool
	SIF    bool
	DC     bool
	DCT    bool
	NV1    bool
	CMOW   bool
	DS     bool
	EPAN   bool

	PIE   bool
	PIR   uint64
	PIRE0 uint64

	EMEC bool
	AMEC bool
}

// S2TTWParams are the decoded register fields that control a stage 2 walk.
type S2TTWParams struct {
	VM   bool
	TGx  TGx
	TxSZ int
	SL0  uint64
	SL2  bool
	PS   uint64

	VTTB  uint64
	VSTTB uint64
	VMID  uint16

	IRGN uint64
	ORGN uint64
	SH   uint64

	HA   bool
	HD   bool
	EE   bool
	FWB  bool
	PTW  bool
	DS   bool
	SW   bool
	NSW  bool
	SA   bool
	NSA  bool
	CMOW bool

	// ID and CD are the HCR_EL2 instruction and data cacheability disables.
	ID bool
	CD bool

	S2PIE bool
	S2PIR uint64

	EMEC  bool
	HDBSS bool
}
