package hotplug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSampler_SamplesEveryOnlineCore(t *testing.T) {
	rates := &rateSourceMock{}
	topo := &topologyMock{}
	rates.On("PrimaryMaxRate").Return(uint(1000), nil)
	topo.On("OnlineIDs").Return([]uint{0, 1, 3}, nil)
	rates.On("CurrentRate", uint(0)).Return(uint(800), nil).Once()
	rates.On("CurrentRate", uint(1)).Return(uint(650), nil).Once()
	rates.On("CurrentRate", uint(3)).Return(uint(700), nil).Once()

	sampler := NewLoadSampler(rates, topo)
	sample, err := sampler.Sample()

	require.NoError(t, err)
	assert.Equal(t, uint(1000), sample.MaxRate)
	assert.Equal(t, map[uint]uint{0: 800, 1: 650, 3: 700}, sample.Rates)
	assert.Equal(t, 3, sample.OnlineCount())
	rates.AssertExpectations(t)
}

func TestLoadSampler_PrimaryMaxRateFailureAbortsSample(t *testing.T) {
	rates := &rateSourceMock{}
	topo := &topologyMock{}
	rates.On("PrimaryMaxRate").Return(uint(0), errors.New("cpufreq not ready"))

	sampler := NewLoadSampler(rates, topo)
	_, err := sampler.Sample()

	require.Error(t, err)
	rates.AssertNotCalled(t, "CurrentRate")
}

func TestLoadSampler_CoreRateFailureAbortsSample(t *testing.T) {
	rates := &rateSourceMock{}
	topo := &topologyMock{}
	rates.On("PrimaryMaxRate").Return(uint(1000), nil)
	topo.On("OnlineIDs").Return([]uint{0, 1}, nil)
	rates.On("CurrentRate", uint(0)).Return(uint(800), nil)
	rates.On("CurrentRate", uint(1)).Return(uint(0), errors.New("read failed"))

	sampler := NewLoadSampler(rates, topo)
	_, err := sampler.Sample()

	require.Error(t, err)
}

func TestLoadSampler_TopologyFailureAbortsSample(t *testing.T) {
	rates := &rateSourceMock{}
	topo := &topologyMock{}
	rates.On("PrimaryMaxRate").Return(uint(1000), nil)
	topo.On("OnlineIDs").Return(nil, errors.New("sysfs gone"))

	sampler := NewLoadSampler(rates, topo)
	_, err := sampler.Sample()

	require.Error(t, err)
}
