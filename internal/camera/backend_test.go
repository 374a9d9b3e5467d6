package camera

import (
	"context"
	"testing"
)

func TestNewMediaDevices(t *testing.T) {
	testCases := []struct {
		name         string
		backendType  BackendType
		expectError  bool
		expectedType string
	}{
		{name: "V4L2", backendType: BackendV4L2, expectedType: "*camera.V4L2MediaDevices"},
		{name: "モック", backendType: BackendMock, expectedType: "*camera.MockMediaDevices"},
		{name: "未登録", backendType: BackendType("unknown"), expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			devices, err := NewMediaDevices(tc.backendType, BackendConfig{Device: "/dev/video0"})

			if tc.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			switch tc.expectedType {
			case "*camera.V4L2MediaDevices":
				if _, ok := devices.(*V4L2MediaDevices); !ok {
					t.Errorf("Expected %s, got %T", tc.expectedType, devices)
				}
			case "*camera.MockMediaDevices":
				if _, ok := devices.(*MockMediaDevices); !ok {
					t.Errorf("Expected %s, got %T", tc.expectedType, devices)
				}
			}
		})
	}
}

func TestRegisterBackend(t *testing.T) {
	custom := BackendType("test-custom")
	called := false
	RegisterBackend(custom, func(config BackendConfig) (MediaDevices, error) {
		called = true
		return NewMockMediaDevices(config.Width, config.Height), nil
	})

	found := false
	for _, b := range SupportedBackends() {
		if b == custom {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected %s in supported backends", custom)
	}

	if _, err := NewMediaDevices(custom, BackendConfig{Width: 8, Height: 8}); err != nil {
		t.Fatalf("NewMediaDevices failed: %v", err)
	}
	if !called {
		t.Error("Expected registered creator to be called")
	}
}

func TestMockBackendDefaultSize(t *testing.T) {
	devices, err := NewMediaDevices(BackendMock, BackendConfig{})
	if err != nil {
		t.Fatalf("NewMediaDevices failed: %v", err)
	}

	stream, err := devices.GetUserMedia(context.Background(), Constraints{Video: true})
	if err != nil {
		t.Fatalf("GetUserMedia failed: %v", err)
	}
	defer stopTracks(stream)

	preview := NewFramePreview(0)
	preview.Attach(stream)
	defer preview.Detach()
	if err := preview.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	img, ok := preview.CurrentFrame()
	if !ok {
		t.Fatal("Expected a frame")
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Errorf("Expected 640x480, got %v", img.Bounds())
	}
}
