package node

import "sync"

// In-memory I/O backends for the simulator and for tests.

// SimInputs is a settable DigitalInputBank.
type SimInputs struct {
	lock   sync.Mutex
	states []bool
}

// NewSimInputs creates a bank with n channels, all off.
func NewSimInputs(n int) *SimInputs {
	return &SimInputs{states: make([]bool, n)}
}

// Set changes one channel.
func (s *SimInputs) Set(i int, on bool) {
	s.lock.Lock()
	if i >= 0 && i < len(s.states) {
		s.states[i] = on
	}
	s.lock.Unlock()
}

// InputStates implements DigitalInputBank.
func (s *SimInputs) InputStates() []bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]bool(nil), s.states...)
}

// SimOutputs is a DigitalOutputBank backed by memory.
type SimOutputs struct {
	lock   sync.Mutex
	states []bool
}

// NewSimOutputs creates a bank with n channels, all off.
func NewSimOutputs(n int) *SimOutputs {
	return &SimOutputs{states: make([]bool, n)}
}

// SetOutputs implements DigitalOutputBank.
func (s *SimOutputs) SetOutputs(states []bool) error {
	s.lock.Lock()
	copy(s.states, states)
	s.lock.Unlock()
	return nil
}

// OutputStates implements DigitalOutputBank.
func (s *SimOutputs) OutputStates() []bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]bool(nil), s.states...)
}

// SimAnalog is an AnalogBank backed by memory.
type SimAnalog struct {
	lock         sync.Mutex
	currents     []float32
	voltages     []float32
	temperatures []float32
}

// NewSimAnalog creates a bank with the standard channel counts.
func NewSimAnalog() *SimAnalog {
	return &SimAnalog{
		currents:     make([]float32, NumCurrentChannels),
		voltages:     make([]float32, NumVoltageChannels),
		temperatures: make([]float32, NumTemperatureChannels),
	}
}

// SetCurrent sets one 4-20mA channel reading.
func (s *SimAnalog) SetCurrent(i int, mA float32) {
	s.lock.Lock()
	if i >= 0 && i < len(s.currents) {
		s.currents[i] = mA
	}
	s.lock.Unlock()
}

// SetVoltage sets one voltage channel reading.
func (s *SimAnalog) SetVoltage(i int, v float32) {
	s.lock.Lock()
	if i >= 0 && i < len(s.voltages) {
		s.voltages[i] = v
	}
	s.lock.Unlock()
}

// SetTemperature sets one NTC channel reading.
func (s *SimAnalog) SetTemperature(i int, c float32) {
	s.lock.Lock()
	if i >= 0 && i < len(s.temperatures) {
		s.temperatures[i] = c
	}
	s.lock.Unlock()
}

// Currents implements AnalogBank.
func (s *SimAnalog) Currents() []float32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]float32(nil), s.currents...)
}

// Voltages implements AnalogBank.
func (s *SimAnalog) Voltages() []float32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]float32(nil), s.voltages...)
}

// Temperatures implements AnalogBank.
func (s *SimAnalog) Temperatures() []float32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]float32(nil), s.temperatures...)
}
