package sid

// Entry points of the player, relative to the start of the blob (and so to LoadAddress).
const (
	PlayerInitOffset = 0x00
	PlayerPlayOffset = 0x05
)

// Player is the 6502 replay routine loaded at LoadAddress. It is copied into
// every exported file as is and never modified; the header's init and play
// addresses point into it.
var Player = [...]byte{
	0x85, 0xFE, 0xA2, 0x00, 0x86, 0xFB, 0x86, 0xFC, 0x60,
	0xA0, 0x00, 0xB1, 0xFB, 0xC9, 0xFF, 0xF0, 0x1C, 0xAA, 0xC8,
	0xB1, 0xFB, 0x85, 0xFD, 0xC8, 0xB1, 0xFB, 0xA6, 0xFD, 0x9D, 0x00, 0xD4,
	0xC8, 0xCA, 0xD0, 0xF4, 0x98, 0x18, 0x65, 0xFB, 0x85, 0xFB, 0x90, 0x02,
	0xE6, 0xFC, 0x60, 0x60,
}

// PlayerSize is the length of the player blob in bytes.
const PlayerSize = len(Player)
