package launcher

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	args := m.Called(rType, request, val, idx, data)
	return args.Int(0), args.Error(1)
}

func newTestDevice(v Variant) (*Device, *mockController, *bytes.Buffer) {
	ctrl := &mockController{}
	var buf bytes.Buffer
	d := newDevice(Model{Variant: v}, ctrl)
	d.logger = log.New(&buf, "", 0)
	return d, ctrl, &buf
}

func TestSend_ThunderLayout(t *testing.T) {
	for _, code := range []Code{Down, Up, Left, Right, Fire, Stop} {
		d, ctrl, _ := newTestDevice(Thunder)
		want := []byte{0x02, byte(code), 0, 0, 0, 0, 0, 0}
		ctrl.On("Control", uint8(0x21), uint8(0x09), uint16(0), uint16(0), want).Return(8, nil).Once()

		require.NoError(t, d.Send(code))
		ctrl.AssertExpectations(t)
	}
}

func TestSend_OriginalLayout(t *testing.T) {
	for _, code := range []Code{Down, Up, Left, Right, Fire, Stop} {
		d, ctrl, _ := newTestDevice(Original)
		ctrl.On("Control", uint8(0x21), uint8(0x09), uint16(0x0200), uint16(0), []byte{byte(code)}).Return(1, nil).Once()

		require.NoError(t, d.Send(code))
		ctrl.AssertExpectations(t)
	}
}

func TestSend_TransferErrorPropagates(t *testing.T) {
	d, ctrl, _ := newTestDevice(Thunder)
	usbErr := errors.New("libusb: pipe error")
	ctrl.On("Control", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, usbErr)

	err := d.Send(Up)
	require.Error(t, err)
	assert.ErrorIs(t, err, usbErr)
}

func TestSend_UnknownVariant(t *testing.T) {
	d, ctrl, _ := newTestDevice(VariantUnknown)
	assert.Error(t, d.Send(Up))
	ctrl.AssertNotCalled(t, "Control", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetLED_Thunder(t *testing.T) {
	d, ctrl, buf := newTestDevice(Thunder)
	ctrl.On("Control", uint8(0x21), uint8(0x09), uint16(0), uint16(0), []byte{0x03, 0x01, 0, 0, 0, 0, 0, 0}).Return(8, nil).Once()
	ctrl.On("Control", uint8(0x21), uint8(0x09), uint16(0), uint16(0), []byte{0x03, 0x00, 0, 0, 0, 0, 0, 0}).Return(8, nil).Once()

	require.NoError(t, d.SetLED(true))
	require.NoError(t, d.SetLED(false))
	ctrl.AssertExpectations(t)
	assert.Empty(t, buf.String())
}

func TestSetLED_OriginalLogsOnly(t *testing.T) {
	d, ctrl, buf := newTestDevice(Original)

	require.NoError(t, d.SetLED(true))
	require.NoError(t, d.SetLED(false))

	ctrl.AssertNotCalled(t, "Control", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("no LED")))
}

func TestProbe_PrefersThunder(t *testing.T) {
	var tried []Model
	m, err := probe(func(m Model) (bool, error) {
		tried = append(tried, m)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Thunder, m.Variant)
	assert.Equal(t, uint16(0x2123), m.Vendor)
	assert.Equal(t, uint16(0x1010), m.Product)
	assert.Len(t, tried, 1)
}

func TestProbe_FallsBackToOriginal(t *testing.T) {
	var tried []Model
	m, err := probe(func(m Model) (bool, error) {
		tried = append(tried, m)
		return m.Variant == Original, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Original, m.Variant)
	assert.Equal(t, uint16(0x0a81), m.Vendor)
	assert.Equal(t, uint16(0x0701), m.Product)
	assert.Equal(t, []Model{Models[0], Models[1]}, tried)
}

func TestProbe_NotFound(t *testing.T) {
	_, err := probe(func(Model) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestProbe_OpenError(t *testing.T) {
	accessErr := errors.New("libusb: bad access")
	_, err := probe(func(Model) (bool, error) { return false, accessErr })
	assert.ErrorIs(t, err, accessErr)
	assert.NotErrorIs(t, err, ErrDeviceNotFound)
}

func TestClose_ReleasesInReverseOrder(t *testing.T) {
	d, _, _ := newTestDevice(Thunder)
	var order []string
	d.release = []func() error{
		func() error { order = append(order, "context"); return nil },
		func() error { order = append(order, "device"); return nil },
		func() error { order = append(order, "interface"); return errors.New("busy") },
	}

	err := d.Close()
	assert.Error(t, err)
	assert.Equal(t, []string{"interface", "device", "context"}, order)
	assert.NoError(t, d.Close())
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "RIGHT", Right.String())
	assert.Equal(t, "STOP", Stop.String())
	assert.Equal(t, "0x40", Code(0x40).String())
	assert.Equal(t, "Thunder", Thunder.String())
}

func TestDemoProvider(t *testing.T) {
	d := NewDemoProvider()
	require.NoError(t, d.Send(Left))
	require.NoError(t, d.SetLED(true))

	last, led, n := d.State()
	assert.Equal(t, Left, last)
	assert.True(t, led)
	assert.Equal(t, 2, n)
	assert.Equal(t, Thunder, d.Variant())
	assert.NoError(t, d.Close())
}
