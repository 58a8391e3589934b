//go:build windows

package input

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"keytrail/internal/keys"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessage     = user32.NewProc("DispatchMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C
	wmMouseHWheel = 0x020E
)

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msLLHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// Low-level hook procedures cannot carry state, so the subscribed hook is
// published here. Only one Hook can be subscribed per process.
var (
	activeHook    atomic.Pointer[Hook]
	callbacksOnce sync.Once
	mouseCallback uintptr
	keyCallback   uintptr
	mouseHandle   uintptr
	keyHandle     uintptr
)

// Hook is the Windows EventSource backed by WH_MOUSE_LL and WH_KEYBOARD_LL
// hooks running on a dedicated OS thread.
type Hook struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers Handlers
	threadID uint32
	done     chan struct{}

	// only touched on the hook thread
	wheel, hwheel wheelAccumulator
}

// NewHook creates an unsubscribed platform hook.
func NewHook(logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hook{logger: logger}
}

func (h *Hook) Subscribe(handlers Handlers) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return nil
	}
	if !activeHook.CompareAndSwap(nil, h) {
		return errors.New("another input hook is already subscribed")
	}

	callbacksOnce.Do(func() {
		mouseCallback = windows.NewCallback(mouseProc)
		keyCallback = windows.NewCallback(keyboardProc)
	})

	h.handlers = handlers
	ready := make(chan error, 1)
	done := make(chan struct{})
	go h.run(ready, done)

	if err := <-ready; err != nil {
		<-done
		activeHook.Store(nil)
		return err
	}
	h.done = done
	h.logger.Info("input hooks installed", "thread", h.threadID)
	return nil
}

func (h *Hook) Unsubscribe() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done == nil {
		return nil
	}
	ret, _, err := procPostThreadMessage.Call(uintptr(h.threadID), wmQuit, 0, 0)
	if ret == 0 {
		return fmt.Errorf("post quit to hook thread: %w", err)
	}
	<-h.done
	h.done = nil
	activeHook.Store(nil)
	h.logger.Info("input hooks removed")
	return nil
}

// run installs both hooks on a locked OS thread and pumps its message queue
// until WM_QUIT. Hooks must be registered on the thread that runs the loop.
func (h *Hook) run(ready chan<- error, done chan<- struct{}) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	h.threadID = windows.GetCurrentThreadId()
	hMod, _, _ := procGetModuleHandle.Call(0)

	var err error
	mouseHandle, _, err = procSetWindowsHookEx.Call(whMouseLL, mouseCallback, hMod, 0)
	if mouseHandle == 0 {
		ready <- fmt.Errorf("set mouse hook: %w", err)
		return
	}
	keyHandle, _, err = procSetWindowsHookEx.Call(whKeyboardLL, keyCallback, hMod, 0)
	if keyHandle == 0 {
		procUnhookWindowsHookEx.Call(mouseHandle)
		mouseHandle = 0
		ready <- fmt.Errorf("set keyboard hook: %w", err)
		return
	}
	ready <- nil

	var m msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}

	procUnhookWindowsHookEx.Call(keyHandle)
	procUnhookWindowsHookEx.Call(mouseHandle)
	keyHandle, mouseHandle = 0, 0
}

func mouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if h := activeHook.Load(); nCode == 0 && h != nil {
		ms := (*msLLHookStruct)(unsafe.Pointer(lParam))
		x, y := int(ms.Pt.X), int(ms.Pt.Y)
		hs := h.handlers

		switch wParam {
		case wmMouseMove:
			hs.Dispatch(Move(x, y))
		case wmLButtonDown, wmLButtonUp:
			hs.Dispatch(Click(x, y, ButtonLeft, wParam == wmLButtonDown))
		case wmRButtonDown, wmRButtonUp:
			hs.Dispatch(Click(x, y, ButtonRight, wParam == wmRButtonDown))
		case wmMButtonDown, wmMButtonUp:
			hs.Dispatch(Click(x, y, ButtonMiddle, wParam == wmMButtonDown))
		case wmXButtonDown, wmXButtonUp:
			btn := ButtonX1
			if ms.MouseData>>16 == 2 {
				btn = ButtonX2
			}
			hs.Dispatch(Click(x, y, btn, wParam == wmXButtonDown))
		case wmMouseWheel:
			if dy := h.wheel.add(int(int16(ms.MouseData >> 16))); dy != 0 {
				hs.Dispatch(Scroll(x, y, 0, dy))
			}
		case wmMouseHWheel:
			if dx := h.hwheel.add(int(int16(ms.MouseData >> 16))); dx != 0 {
				hs.Dispatch(Scroll(x, y, dx, 0))
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(mouseHandle, uintptr(nCode), wParam, lParam)
	return ret
}

func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if h := activeHook.Load(); nCode == 0 && h != nil {
		kbd := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
		k := keys.FromVK(kbd.VkCode)
		switch wParam {
		case wmKeyDown, wmSysKeyDown:
			h.handlers.Dispatch(KeyPress(k))
		case wmKeyUp, wmSysKeyUp:
			h.handlers.Dispatch(KeyRelease(k))
		}
	}
	ret, _, _ := procCallNextHookEx.Call(keyHandle, uintptr(nCode), wParam, lParam)
	return ret
}
