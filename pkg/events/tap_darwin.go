//go:build darwin

package events

/*
#cgo darwin CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework Cocoa
#include <ApplicationServices/ApplicationServices.h>
#include <Cocoa/Cocoa.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

static Boolean axCheckTrusted(void) {
        const void *keys[] = { kAXTrustedCheckOptionPrompt };
        const void *values[] = { kCFBooleanTrue };
        CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                     &kCFTypeDictionaryKeyCallBacks,
                                                     &kCFTypeDictionaryValueCallBacks);
        Boolean trusted = AXIsProcessTrustedWithOptions(options);
        CFRelease(options);
        return trusted;
}

extern CGEventRef goHandleEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef startEventTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
        CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
                                             kCGHeadInsertEventTap,
                                             kCGEventTapOptionDefault,
                                             mask,
                                             goHandleEvent,
                                             (void *)handle);
        if (tap == NULL) {
                return NULL;
        }
        CGEventTapEnable(tap, true);
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
        *tapOut = tap;
        return source;
}

static void enableEventTap(CFMachPortRef tap) {
        CGEventTapEnable(tap, true);
}

static CFRunLoopRef currentRunLoop(void) {
        return CFRunLoopGetCurrent();
}

static CGEventMask cgEventMaskBit(CGEventType type) {
        return ((CGEventMask)1) << type;
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
        CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
        CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
        CFRunLoopStop(loop);
}

static int64_t cgEventGetKeycode(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static CGEventRef droppedEvent(void) {
        return NULL;
}

static int64_t cgEventGetAutorepeat(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGKeyboardEventAutorepeat);
}

static CFStringRef copyFocusedAppBundle(void) {
        NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
        if (app == nil) {
                return NULL;
        }
        NSString *bundleID = app.bundleIdentifier ?: @"";
        return (__bridge_retained CFStringRef)bundleID;
}

static CFStringRef copyFocusedAppName(void) {
        NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
        if (app == nil) {
                return NULL;
        }
        NSString *name = app.localizedName ?: @"";
        return (__bridge_retained CFStringRef)name;
}
*/
import "C"

import (
	"context"
	"errors"
	"runtime"
	"runtime/cgo"
	"strconv"
	"sync"
	"time"
	"unsafe"
)

type macEventSource struct {
	now func() time.Time
}

func defaultEventSource(clock func() time.Time) EventSource {
	return &macEventSource{now: clock}
}

type macEventStream struct {
	emit      func(*Event) error
	now       func() time.Time
	tap       C.CFMachPortRef
	stopped   chan struct{}
	stopLoop  func()
	err       error
	closeOnce sync.Once
}

func newMacEventStream(now func() time.Time, emit func(*Event) error) *macEventStream {
	return &macEventStream{
		emit:    emit,
		now:     now,
		stopped: make(chan struct{}),
	}
}

func (s *macEventStream) close() {
	s.closeOnce.Do(func() {
		close(s.stopped)
	})
}

func (s *macEventStream) setErr(err error) {
	if err == nil {
		return
	}
	if s.err == nil {
		s.err = err
	}
}

// emitEvent hands the event to the pipeline and reports whether the OS should
// still deliver it. Once the stream has failed, events flow through untouched.
func (s *macEventStream) emitEvent(event *Event) bool {
	if s.err != nil {
		return true
	}
	if err := s.emit(event); err != nil {
		s.setErr(err)
		if s.stopLoop != nil {
			s.stopLoop()
		}
		return true
	}
	return !event.DefaultPrevented()
}

func (s *macEventStream) handleKeyboard(now time.Time, eventType C.CGEventType, event C.CGEventRef) bool {
	keycode := int(C.cgEventGetKeycode(event))
	meta := focusMetadata()
	meta["keycode"] = strconv.Itoa(keycode)
	if C.cgEventGetAutorepeat(event) != 0 {
		meta["autorepeat"] = "true"
	}
	action := ActionPress
	if eventType == C.kCGEventKeyUp {
		action = ActionRelease
	}
	target := meta["bundle"]
	if target == "" {
		target = meta["app"]
	}
	return s.emitEvent(&Event{
		Timestamp: now,
		Category:  CategoryKeyboard,
		Action:    action,
		Target:    target,
		Code:      CodeForMacKeycode(keycode),
		Metadata:  meta,
	})
}

func focusMetadata() map[string]string {
	meta := make(map[string]string)
	if name := cfStringToGo(C.copyFocusedAppName()); name != "" {
		meta["app"] = name
	}
	if bundle := cfStringToGo(C.copyFocusedAppBundle()); bundle != "" {
		meta["bundle"] = bundle
	}
	return meta
}

func cfStringToGo(str C.CFStringRef) string {
	if str == 0 {
		return ""
	}
	defer C.CFRelease(C.CFTypeRef(str))
	length := C.CFStringGetLength(str)
	if length == 0 {
		return ""
	}
	bufSize := C.CFIndex(1 + 4*length)
	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(str, (*C.char)(unsafe.Pointer(&buf[0])), bufSize, C.kCFStringEncodingUTF8) == C.Boolean(0) {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}

func (s *macEventSource) Stream(ctx context.Context, emit func(*Event) error) error {
	if C.axCheckTrusted() == C.Boolean(0) {
		return ErrAccessibilityPermission
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stream := newMacEventStream(s.now, emit)
	handle := cgo.NewHandle(stream)
	defer handle.Delete()

	mask := C.cgEventMaskBit(C.kCGEventKeyDown) | C.cgEventMaskBit(C.kCGEventKeyUp)

	var tap C.CFMachPortRef
	source := C.startEventTap(C.uintptr_t(handle), mask, &tap)
	if source == 0 {
		return errors.New("failed to create CGEvent tap")
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(tap))
	stream.tap = tap

	loop := C.currentRunLoop()
	stopOnce := sync.Once{}
	stream.stopLoop = func() {
		stopOnce.Do(func() {
			C.stopRunLoop(loop)
		})
	}
	C.addSourceToRunLoop(loop, source)

	cancelWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.stopLoop()
		case <-stream.stopped:
		}
		close(cancelWatcher)
	}()

	C.runCurrentRunLoop()
	stream.stopLoop()
	stream.close()
	<-cancelWatcher
	if stream.err != nil {
		return stream.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

//export goHandleEvent
func goHandleEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	handle := cgo.Handle(uintptr(userInfo))
	stream, ok := handle.Value().(*macEventStream)
	if !ok {
		return event
	}

	switch eventType {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		// The system disables slow taps; turn it back on or keys stop being filtered.
		if stream.tap != 0 {
			C.enableEventTap(stream.tap)
		}
		return event
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		// Keep the monotonic reading; UTC() would strip it.
		if !stream.handleKeyboard(stream.now(), eventType, event) {
			return C.droppedEvent()
		}
	}

	return event
}
