package protocol

// Register addresses and command codes understood by the sensor firmware. Commands are 5 bytes:
// a two-byte preamble, a command byte, and a little-endian 16-bit value.
const (
	RegisterSave        byte = 0x00
	RegisterRate        byte = 0x03
	RegisterReadRequest byte = 0x27
	RegisterUnlock      byte = 0x69
	RegisterOutputMode  byte = 0x96
)

const (
	unlockKey            uint16 = 0xB588
	commandPreambleFirst byte   = 0xFF
	commandPreambleNext  byte   = 0xAA
)

// CommandLength is the size of every command written to the sensor.
const CommandLength = 5

// WriteRegisterCommand encodes a register write.
func WriteRegisterCommand(register byte, value uint16) []byte {
	return []byte{commandPreambleFirst, commandPreambleNext, register, byte(value), byte(value >> 8)}
}

// ReadRegisterCommand encodes a request for the sensor to report a register value.
func ReadRegisterCommand(register byte) []byte {
	return []byte{commandPreambleFirst, commandPreambleNext, RegisterReadRequest, register, 0}
}

// UnlockCommand must precede register writes.
func UnlockCommand() []byte {
	return WriteRegisterCommand(RegisterUnlock, unlockKey)
}

// SaveCommand persists written registers.
func SaveCommand() []byte {
	return WriteRegisterCommand(RegisterSave, 0)
}

// ConfigureSequence returns, in the order the firmware requires, the commands that set the output
// mode and transmission rate registers.
func ConfigureSequence(outputMode, rate uint16) [][]byte {
	return [][]byte{
		UnlockCommand(),
		WriteRegisterCommand(RegisterOutputMode, outputMode),
		WriteRegisterCommand(RegisterRate, rate),
		SaveCommand(),
	}
}
