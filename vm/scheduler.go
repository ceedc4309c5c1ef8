package vm

// ---------------------------------------------------------------------------
// Process scheduler
// ---------------------------------------------------------------------------

// schedulerObj returns the ProcessorScheduler.
func (in *Interpreter) schedulerObj() *Object {
	assoc := in.mem.Get(in.mem.Special(SpecialSchedulerAssociation))
	if assoc == nil {
		return nil
	}
	v, _ := assoc.Fetch(AssociationValue)
	return in.mem.Get(v)
}

// activeProcess returns the running process.
func (in *Interpreter) activeProcess() Value {
	sched := in.schedulerObj()
	if sched == nil {
		return in.mem.nilObj
	}
	v, _ := sched.Fetch(SchedulerActiveProcess)
	return v
}

// ActiveProcess returns the running process.
func (in *Interpreter) ActiveProcess() Value {
	return in.activeProcess()
}

func (in *Interpreter) priorityOf(process Value) int {
	obj := in.mem.Get(process)
	if obj == nil {
		return 0
	}
	v, _ := obj.Fetch(ProcessPriority)
	if !v.IsSmallInt() {
		return 0
	}
	return int(v.SmallInt())
}

// resume makes process runnable. It preempts the active process only when
// its priority is strictly higher.
func (in *Interpreter) resume(process Value) {
	active := in.activeProcess()
	if in.priorityOf(process) > in.priorityOf(active) {
		in.putToSleep(active)
		in.transferTo(process)
	} else {
		in.putToSleep(process)
	}
}

// putToSleep appends process to the ready list of its priority.
func (in *Interpreter) putToSleep(process Value) {
	lists := in.processLists()
	list, ok := lists.Fetch(in.priorityOf(process) - 1)
	if !ok {
		fatal(ErrNoRunnableProcess, "process priority %d out of range", in.priorityOf(process))
	}
	in.linkedListAddLast(list, process)
}

func (in *Interpreter) processLists() *Object {
	sched := in.schedulerObj()
	if sched == nil {
		fatal(ErrNoRunnableProcess, "no ProcessorScheduler")
	}
	v, _ := sched.Fetch(SchedulerProcessLists)
	lists := in.mem.Get(v)
	if lists == nil {
		fatal(ErrNoRunnableProcess, "scheduler has no process lists")
	}
	return lists
}

// transferTo makes process the running process: the active context is
// saved in the outgoing process and the incoming one's context is resumed.
func (in *Interpreter) transferTo(process Value) {
	sched := in.schedulerObj()
	old := in.mem.Get(in.activeProcess())
	sched.Store(SchedulerActiveProcess, process)
	if old != nil {
		old.Store(ProcessSuspendedContext, in.activeContext)
	}
	proc := in.mem.Get(process)
	ctx, _ := proc.Fetch(ProcessSuspendedContext)
	in.newActiveContext(ctx)
	proc.Store(ProcessSuspendedContext, in.mem.nilObj)
	in.reclaimableContextCount = 0
	in.stats.ProcessSwitches++
}

// wakeHighestPriority removes and returns the first process of the highest
// non-empty ready list.
func (in *Interpreter) wakeHighestPriority() Value {
	lists := in.processLists()
	for p := lists.PointerCount() - 1; p >= 0; p-- {
		list, _ := lists.Fetch(p)
		if !in.isEmptyList(list) {
			return in.removeFirstLink(list)
		}
	}
	fatal(ErrNoRunnableProcess, "all ready lists are empty")
	return Invalid
}

// suspendActive stops the running process and switches to the next one.
func (in *Interpreter) suspendActive() {
	in.transferTo(in.wakeHighestPriority())
}

// yield lets another ready process of the same priority run.
func (in *Interpreter) yield() {
	active := in.activeProcess()
	lists := in.processLists()
	list, ok := lists.Fetch(in.priorityOf(active) - 1)
	if !ok || in.isEmptyList(list) {
		return
	}
	in.linkedListAddLast(list, active)
	in.transferTo(in.wakeHighestPriority())
}

// ---------------------------------------------------------------------------
// Semaphores
// ---------------------------------------------------------------------------

// synchronousSignal wakes the first waiter of sem, or records an excess
// signal when nobody waits.
func (in *Interpreter) synchronousSignal(sem Value) {
	if in.isEmptyList(sem) {
		obj := in.mem.Get(sem)
		excess, _ := obj.Fetch(SemaphoreExcess)
		n := int64(0)
		if excess.IsSmallInt() {
			n = excess.SmallInt()
		}
		obj.Store(SemaphoreExcess, FromSmallInt(n+1))
		return
	}
	in.resume(in.removeFirstLink(sem))
}

// semaphoreWait consumes an excess signal or blocks the active process.
func (in *Interpreter) semaphoreWait(sem Value) {
	obj := in.mem.Get(sem)
	excess, _ := obj.Fetch(SemaphoreExcess)
	if excess.IsSmallInt() && excess.SmallInt() > 0 {
		obj.Store(SemaphoreExcess, FromSmallInt(excess.SmallInt()-1))
		return
	}
	in.linkedListAddLast(sem, in.activeProcess())
	in.transferTo(in.wakeHighestPriority())
}

// ---------------------------------------------------------------------------
// Linked lists
// ---------------------------------------------------------------------------

func (in *Interpreter) isEmptyList(list Value) bool {
	obj := in.mem.Get(list)
	if obj == nil {
		return true
	}
	first, _ := obj.Fetch(LinkedListFirst)
	return first == in.mem.nilObj || first == Invalid
}

func (in *Interpreter) linkedListAddLast(list, process Value) {
	listObj := in.mem.Get(list)
	procObj := in.mem.Get(process)
	if in.isEmptyList(list) {
		listObj.Store(LinkedListFirst, process)
	} else {
		last, _ := listObj.Fetch(LinkedListLast)
		in.mem.Get(last).Store(LinkNext, process)
	}
	listObj.Store(LinkedListLast, process)
	procObj.Store(LinkNext, in.mem.nilObj)
	procObj.Store(ProcessMyList, list)
}

func (in *Interpreter) removeFirstLink(list Value) Value {
	listObj := in.mem.Get(list)
	first, _ := listObj.Fetch(LinkedListFirst)
	last, _ := listObj.Fetch(LinkedListLast)
	firstObj := in.mem.Get(first)
	if first == last {
		listObj.Store(LinkedListFirst, in.mem.nilObj)
		listObj.Store(LinkedListLast, in.mem.nilObj)
	} else {
		next, _ := firstObj.Fetch(LinkNext)
		listObj.Store(LinkedListFirst, next)
	}
	firstObj.Store(LinkNext, in.mem.nilObj)
	firstObj.Store(ProcessMyList, in.mem.nilObj)
	return first
}

// removeLink unlinks process from list. It reports false when the process
// is not on the list.
func (in *Interpreter) removeLink(list, process Value) bool {
	listObj := in.mem.Get(list)
	first, _ := listObj.Fetch(LinkedListFirst)
	if first == process {
		in.removeFirstLink(list)
		return true
	}
	prev := first
	for prev != in.mem.nilObj {
		prevObj := in.mem.Get(prev)
		if prevObj == nil {
			return false
		}
		next, _ := prevObj.Fetch(LinkNext)
		if next == process {
			procObj := in.mem.Get(process)
			after, _ := procObj.Fetch(LinkNext)
			prevObj.Store(LinkNext, after)
			if last, _ := listObj.Fetch(LinkedListLast); last == process {
				listObj.Store(LinkedListLast, prev)
			}
			procObj.Store(LinkNext, in.mem.nilObj)
			procObj.Store(ProcessMyList, in.mem.nilObj)
			return true
		}
		prev = next
	}
	return false
}
