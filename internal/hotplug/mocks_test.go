package hotplug

import (
	"github.com/stretchr/testify/mock"
)

type rateSourceMock struct {
	mock.Mock
}

func (m *rateSourceMock) PrimaryMaxRate() (uint, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Error(1)
}

func (m *rateSourceMock) CurrentRate(cpuID uint) (uint, error) {
	args := m.Called(cpuID)
	return args.Get(0).(uint), args.Error(1)
}

type topologyMock struct {
	mock.Mock
}

func (m *topologyMock) OnlineIDs() ([]uint, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

func (m *topologyMock) PresentIDs() ([]uint, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

type hotplugMock struct {
	mock.Mock
}

func (m *hotplugMock) BringOnline(cpuID uint) error {
	return m.Called(cpuID).Error(0)
}

func (m *hotplugMock) TakeOffline(cpuID uint) error {
	return m.Called(cpuID).Error(0)
}

type samplerMock struct {
	mock.Mock
}

func (m *samplerMock) Sample() (Sample, error) {
	args := m.Called()
	return args.Get(0).(Sample), args.Error(1)
}

type lifecycleMock struct {
	mock.Mock
}

func (m *lifecycleMock) ScaleUp(params Parameters) error {
	return m.Called(params).Error(0)
}

func (m *lifecycleMock) ScaleDown(cpuID uint, params Parameters) error {
	return m.Called(cpuID, params).Error(0)
}

func (m *lifecycleMock) RestoreCapacity(maxCores uint32) error {
	return m.Called(maxCores).Error(0)
}

func (m *lifecycleMock) OfflineAllButPrimary() error {
	return m.Called().Error(0)
}
