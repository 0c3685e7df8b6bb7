//go:build darwin && cgo

package platform

/*
#include <mach/mach.h>
#include <pthread.h>
#include <stdint.h>

static int thread_times(int64_t *usec_user, int64_t *usec_sys, int64_t *sec_user, int64_t *sec_sys) {
	mach_port_t thread = mach_thread_self();
	thread_basic_info_data_t info;
	mach_msg_type_number_t count = THREAD_BASIC_INFO_COUNT;
	kern_return_t kr = thread_info(thread, THREAD_BASIC_INFO, (thread_info_t)&info, &count);
	mach_port_deallocate(mach_task_self(), thread);
	if (kr != KERN_SUCCESS) {
		return (int)kr;
	}
	*sec_user = info.user_time.seconds;
	*usec_user = info.user_time.microseconds;
	*sec_sys = info.system_time.seconds;
	*usec_sys = info.system_time.microseconds;
	return 0;
}

static uint64_t thread_id(void) {
	uint64_t tid = 0;
	pthread_threadid_np(NULL, &tid);
	return tid;
}
*/
import "C"

import (
	"fmt"

	"github.com/Dicklesworthstone/procmon/internal/model"
)

func threadID() uint64 {
	return uint64(C.thread_id())
}

func threadTimes() (model.CPUTimes, error) {
	var userUsec, sysUsec, userSec, sysSec C.int64_t
	if kr := C.thread_times(&userUsec, &sysUsec, &userSec, &sysSec); kr != 0 {
		return model.CPUTimes{}, model.Failure("thread_info", fmt.Errorf("kern_return %d", int(kr)))
	}
	return model.CPUTimes{
		User:   model.RawTime{Sec: int64(userSec), Usec: int64(userUsec)},
		System: model.RawTime{Sec: int64(sysSec), Usec: int64(sysUsec)},
	}, nil
}
